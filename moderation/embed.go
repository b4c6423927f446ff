package moderation

import "embed"

//go:embed wordlists/*.txt
var Dictionaries embed.FS
