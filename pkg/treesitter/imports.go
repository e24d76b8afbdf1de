package treesitter

import "strings"

// Imports returns the module references declared in tree, in document
// order. Duplicates are kept; callers normalize.
func Imports(tree Tree, lang Language) []string {
	if tree == nil {
		return nil
	}
	root := tree.RootNode()
	src := tree.Source()

	switch lang {
	case Go:
		return goImports(root, src)
	case Python:
		return pythonImports(root, src)
	case JavaScript, TypeScript:
		return jsImports(root, src)
	}
	return nil
}

func goImports(root Node, src []byte) []string {
	var out []string
	for _, spec := range FindByType(root, "import_spec") {
		if p := spec.ChildByFieldName("path"); p != nil {
			out = append(out, unquote(p.Content(src)))
		}
	}
	return out
}

func pythonImports(root Node, src []byte) []string {
	var out []string
	for _, stmt := range FindByType(root, "import_statement") {
		for _, c := range NamedChildren(stmt) {
			switch c.Type() {
			case "dotted_name":
				out = append(out, c.Content(src))
			case "aliased_import":
				if name := c.ChildByFieldName("name"); name != nil {
					out = append(out, name.Content(src))
				}
			}
		}
	}
	for _, stmt := range FindByType(root, "import_from_statement") {
		if mod := stmt.ChildByFieldName("module_name"); mod != nil {
			out = append(out, mod.Content(src))
		}
	}
	if len(FindByType(root, "future_import_statement")) > 0 {
		out = append(out, "__future__")
	}
	return out
}

func jsImports(root Node, src []byte) []string {
	var out []string
	for _, stmt := range FindByType(root, "import_statement") {
		if s := stmt.ChildByFieldName("source"); s != nil {
			out = append(out, unquote(s.Content(src)))
		}
	}
	for _, call := range FindByType(root, "call_expression") {
		fn := call.ChildByFieldName("function")
		if fn == nil || fn.Content(src) != "require" {
			continue
		}
		args := call.ChildByFieldName("arguments")
		if args == nil {
			continue
		}
		for _, a := range NamedChildren(args) {
			if a.Type() == "string" {
				out = append(out, unquote(a.Content(src)))
			}
			break
		}
	}
	return out
}

func unquote(s string) string {
	return strings.Trim(s, "\"'`")
}
