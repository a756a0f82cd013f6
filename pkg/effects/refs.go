package effects

// ResultRef is a sentinel argument value standing for "the previous node's
// result" (get_result(), §4.3.1) when used as an element of a call node's
// Args. The interpreter resolves it immediately before dispatch.
type ResultRef struct{}

// Result returns the get_result() sentinel for use in Args.
func Result() ResultRef { return ResultRef{} }

// DataRef is a sentinel argument value standing for the FSM instance's
// bound data at Key (get_data(key)) when used as an element of a call
// node's Args.
type DataRef struct{ Key string }

// DataValue returns the get_data(key) sentinel for use in Args.
func DataValue(key string) DataRef { return DataRef{Key: key} }

// DelayedResult is a delay node's result (§4.3.2): delay has no payload of
// its own, so it yields this sentinel rather than nil, matching the
// documented :delayed atom in a parallel/sequence result list.
type DelayedResult struct{}

func (DelayedResult) String() string { return ":delayed" }

// Delayed is the sentinel value a delay node resolves to.
var Delayed = DelayedResult{}

// resolveArgs substitutes ResultRef/DataRef sentinels in place, leaving any
// other value untouched.
func resolveArgs(args []interface{}, lastResult interface{}, data DataStore) []interface{} {
	if len(args) == 0 {
		return args
	}
	out := make([]interface{}, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case ResultRef:
			out[i] = lastResult
		case DataRef:
			val, _ := data.Get(v.Key)
			out[i] = val
		default:
			out[i] = a
		}
	}
	return out
}
