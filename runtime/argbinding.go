package runtime

import (
	"strconv"

	"github.com/wudi/monty/heap"
	"github.com/wudi/monty/registry"
	"github.com/wudi/monty/values"
)

// BindArguments binds positional and keyword call arguments to a
// function's declared parameters, producing CPython-exact TypeError
// messages on failure (spec §4.4.4, reproduced byte-for-byte from
// _examples/original_source's src/function.rs per SPEC_FULL.md §C.6).
// kwargs maps parameter name -> value; callers that don't support keyword
// arguments pass nil.
func BindArguments(h *heap.Heap, fn *registry.FunctionRecord, positional []values.Value, kwargs map[string]values.Value, resolveDefault func(idx int) (values.Value, error)) ([]values.Value, values.Value, error) {
	slots := make([]values.Value, fn.NamespaceSize)
	for i := range slots {
		slots[i] = values.Undefined()
	}
	bound := make([]bool, len(fn.Params))

	maxPositional := len(fn.Params)
	if fn.IsVariadic {
		maxPositional = len(fn.Params) // variadic extra go to VariadicSlot, not regular params
	}

	if len(positional) > maxPositional && !fn.IsVariadic {
		required := 0
		for _, p := range fn.Params {
			if !p.HasDefault {
				required++
			}
		}
		exc, err := TypeError(h, tooManyPositionalMessage(fn.Name, required, maxPositional, len(positional)))
		return nil, exc, err
	}

	n := len(positional)
	if n > len(fn.Params) {
		n = len(fn.Params)
	}
	for i := 0; i < n; i++ {
		slots[fn.Params[i].NamespaceSlot] = positional[i]
		bound[i] = true
	}
	if fn.IsVariadic && len(positional) > len(fn.Params) {
		extra := append([]values.Value(nil), positional[len(fn.Params):]...)
		id, err := h.Allocate(&values.Tuple{Items: extra})
		if err != nil {
			return nil, values.Value{}, err
		}
		slots[fn.VariadicSlot] = values.Ref(id)
	}

	for name, v := range kwargs {
		found := false
		for i, p := range fn.Params {
			if p.Name == name {
				if bound[i] {
					exc, err := TypeError(h, fn.Name+"() got multiple values for argument '"+name+"'")
					return nil, exc, err
				}
				slots[p.NamespaceSlot] = v
				bound[i] = true
				found = true
				break
			}
		}
		if !found {
			if fn.HasKwargs {
				continue // caller collects unmatched kwargs separately into **kwargs slot
			}
			exc, err := TypeError(h, fn.Name+"() got an unexpected keyword argument '"+name+"'")
			return nil, exc, err
		}
	}

	var missing []string
	for i, p := range fn.Params {
		if bound[i] {
			continue
		}
		if p.HasDefault {
			v, err := resolveDefault(i)
			if err != nil {
				return nil, values.Value{}, err
			}
			slots[p.NamespaceSlot] = v
			continue
		}
		missing = append(missing, p.Name)
	}
	if len(missing) > 0 {
		exc, err := TypeError(h, missingArgumentsMessage(fn.Name, missing))
		return nil, exc, err
	}

	return slots, values.Value{}, nil
}

// missingArgumentsMessage reproduces CPython's Oxford-comma-joined
// "missing N required positional arguments: 'a', 'b', and 'c'" format.
func missingArgumentsMessage(fnName string, names []string) string {
	noun := "argument"
	if len(names) != 1 {
		noun = "arguments"
	}
	return fnName + "() missing " + strconv.Itoa(len(names)) + " required positional " + noun + ": " + oxfordQuoted(names)
}

func tooManyPositionalMessage(fnName string, required, want, got int) string {
	noun := "argument"
	if want != 1 {
		noun = "arguments"
	}
	count := strconv.Itoa(want)
	if required < want {
		count = "from " + strconv.Itoa(required) + " to " + count
	}
	verb := " were given"
	if got == 1 {
		verb = " was given"
	}
	return fnName + "() takes " + count + " positional " + noun + " but " + strconv.Itoa(got) + verb
}

func oxfordQuoted(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	switch len(quoted) {
	case 0:
		return ""
	case 1:
		return quoted[0]
	case 2:
		return quoted[0] + " and " + quoted[1]
	default:
		out := ""
		for i, q := range quoted {
			switch {
			case i == len(quoted)-1:
				out += "and " + q
			default:
				out += q + ", "
			}
		}
		return out
	}
}
