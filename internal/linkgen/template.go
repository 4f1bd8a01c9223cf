package linkgen

import "regexp"

var templateVarPattern = regexp.MustCompile(`\{(\w+)\}`)

// applyTemplate substitutes `{var}` placeholders from vars, the Go
// equivalent of Python's `template.format(**vars)`; an unknown placeholder
// is left empty rather than erroring, since config_rename is admin-supplied.
func applyTemplate(template string, vars map[string]string) string {
	return templateVarPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[1 : len(match)-1]
		return vars[key]
	})
}
