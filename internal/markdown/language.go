package markdown

import (
	"strings"

	"golang.org/x/text/cases"
)

// PlainText is the language assigned to code blocks without a recognised
// fence language.
const PlainText = "plain text"

var languages = map[string]bool{
	"abap": true, "arduino": true, "bash": true, "basic": true, "c": true,
	"clojure": true, "coffeescript": true, "c++": true, "c#": true, "css": true,
	"dart": true, "diff": true, "docker": true, "elixir": true, "elm": true,
	"erlang": true, "flow": true, "fortran": true, "f#": true, "gherkin": true,
	"glsl": true, "go": true, "graphql": true, "groovy": true, "haskell": true,
	"html": true, "java": true, "javascript": true, "json": true, "julia": true,
	"kotlin": true, "latex": true, "less": true, "lisp": true, "livescript": true,
	"lua": true, "makefile": true, "markdown": true, "markup": true, "matlab": true,
	"mermaid": true, "nix": true, "objective-c": true, "ocaml": true, "pascal": true,
	"perl": true, "php": true, PlainText: true, "powershell": true, "prolog": true,
	"protobuf": true, "python": true, "r": true, "reason": true, "ruby": true,
	"rust": true, "sass": true, "scala": true, "scheme": true, "scss": true,
	"shell": true, "sql": true, "swift": true, "typescript": true, "vb.net": true,
	"verilog": true, "vhdl": true, "visual basic": true, "webassembly": true,
	"xml": true, "yaml": true, "java/c/c++/c#": true,
}

var languageAliases = map[string]string{
	"py":          "python",
	"js":          "javascript",
	"ts":          "typescript",
	"sh":          "shell",
	"zsh":         "shell",
	"rb":          "ruby",
	"rs":          "rust",
	"yml":         "yaml",
	"md":          "markdown",
	"cs":          "c#",
	"cpp":         "c++",
	"objc":        "objective-c",
	"objective_c": "objective-c",
	"dockerfile":  "docker",
	"make":        "makefile",
	"tex":         "latex",
	"htm":         "html",
	"jsx":         "javascript",
	"tsx":         "typescript",
	"jsonc":       "json",
	"vb":          "visual basic",
	"fs":          "f#",
	"fsharp":      "f#",
	"csharp":      "c#",
	"golang":      "go",
	"hs":          "haskell",
	"kt":          "kotlin",
	"pl":          "perl",
	"ps1":         "powershell",
	"psm1":        "powershell",
	"asm":         "webassembly",
	"wasm":        "webassembly",
}

// NormalizeLanguage maps a code fence info string to an accepted code
// language. Only the first word counts; trailing version digits are
// ignored ("python3" is python). Unknown or empty input yields PlainText.
func NormalizeLanguage(info string) string {
	fields := strings.Fields(info)
	if len(fields) == 0 {
		return PlainText
	}
	lang := cases.Fold().String(fields[0])

	if l, ok := lookupLanguage(lang); ok {
		return l
	}
	if l, ok := lookupLanguage(strings.TrimRight(lang, "0123456789")); ok {
		return l
	}
	return PlainText
}

func lookupLanguage(lang string) (string, bool) {
	if languages[lang] {
		return lang, true
	}
	alias, ok := languageAliases[lang]
	return alias, ok
}
