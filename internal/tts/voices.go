package tts

import "slices"

var supportedLanguages = []string{"zh-CN", "en-US"}

var supportedVoices = []string{
	"zh-CN-longwan",
	"zh-CN-longcheng",
	"zh-CN-longhua",
	"zh-CN-longxiaochun",
	"zh-CN-longxiaoxia",
	"zh-CN-longxiaocheng",
	"zh-CN-longxiaobai",
	"zh-CN-longlaotie",
	"zh-CN-longshu",
	"zh-CN-longshuo",
	"zh-CN-longjing",
	"zh-CN-longmiao",
	"zh-CN-longyue",
	"zh-CN-longyuan",
	"zh-CN-longfei",
	"zh-CN-longjielidou",
	"zh-CN-longtong",
	"zh-CN-longxiang",
	"zh-CN-loongstella",
	"zh-CN-loongbella",
}

// Languages returns the languages the engine can synthesize.
func (e *Engine) Languages() []string {
	return slices.Clone(supportedLanguages)
}

// Voices returns the supported voice identifiers. Both the prefixed form
// listed here and the bare remote name are accepted by Synthesize.
func (e *Engine) Voices() []string {
	return slices.Clone(supportedVoices)
}
