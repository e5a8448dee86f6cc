package artifacts

import _ "embed"

// Global artifacts

//go:embed global/settings.yml
var GlobalSettings []byte
