package effects

import "fmt"

// ValidationError reports a malformed effect tree, returned without
// starting execution (§4.3.4).
type ValidationError struct {
	Path string
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

// Validate walks the tree and checks tag recognition, arity and required
// opts before any node runs.
func Validate(n *Node) error {
	return validateAt(n, "root")
}

func validateAt(n *Node, path string) error {
	if n == nil {
		return &ValidationError{Path: path, Msg: "nil effect node"}
	}
	switch n.Kind {
	case KindCall:
		if n.Module == "" || n.Function == "" {
			return &ValidationError{Path: path, Msg: "call requires module and function"}
		}
	case KindDelay:
		if n.Ms <= 0 {
			return &ValidationError{Path: path, Msg: "delay requires a positive ms"}
		}
	case KindLog:
		if n.Message == "" {
			return &ValidationError{Path: path, Msg: "log requires a message"}
		}
		switch n.Level {
		case LogDebug, LogInfo, LogWarn, LogError, "":
		default:
			return &ValidationError{Path: path, Msg: fmt.Sprintf("log has unrecognized level %q", n.Level)}
		}
	case KindPutData:
		if n.Key == "" {
			return &ValidationError{Path: path, Msg: "put_data requires a key"}
		}
	case KindGetData:
		if n.Key == "" {
			return &ValidationError{Path: path, Msg: "get_data requires a key"}
		}
	case KindSequence, KindParallel, KindRace:
		if len(n.Children) == 0 {
			return &ValidationError{Path: path, Msg: fmt.Sprintf("%s requires at least one child", n.Kind)}
		}
		for i, c := range n.Children {
			if err := validateAt(c, fmt.Sprintf("%s/%s[%d]", path, n.Kind, i)); err != nil {
				return err
			}
		}
	case KindRetry:
		if n.Child == nil {
			return &ValidationError{Path: path, Msg: "retry requires a child"}
		}
		if n.Retry.Attempts < 1 {
			return &ValidationError{Path: path, Msg: "retry.attempts must be >= 1"}
		}
		switch n.Retry.Backoff {
		case "constant", "linear", "exponential", "":
		default:
			return &ValidationError{Path: path, Msg: fmt.Sprintf("retry has unrecognized backoff %q", n.Retry.Backoff)}
		}
		if err := validateAt(n.Child, path+"/retry"); err != nil {
			return err
		}
	case KindTimeout:
		if n.Child == nil {
			return &ValidationError{Path: path, Msg: "timeout requires a child"}
		}
		if n.Ms <= 0 {
			return &ValidationError{Path: path, Msg: "timeout requires a positive ms"}
		}
		if err := validateAt(n.Child, path+"/timeout"); err != nil {
			return err
		}
	case KindWithCompensation:
		if n.Child == nil || n.Rollback == nil {
			return &ValidationError{Path: path, Msg: "with_compensation requires a child and rollback"}
		}
		if err := validateAt(n.Child, path+"/main"); err != nil {
			return err
		}
		if err := validateAt(n.Rollback, path+"/rollback"); err != nil {
			return err
		}
	case KindCallLLM:
		if n.LLM.Provider == "" || n.LLM.Model == "" || n.LLM.Prompt == "" {
			return &ValidationError{Path: path, Msg: "call_llm requires provider, model and prompt"}
		}
	case KindCoordinateAgents:
		if len(n.Agents) == 0 {
			return &ValidationError{Path: path, Msg: "coordinate_agents requires at least one agent"}
		}
		switch n.Coordination {
		case CoordinationSequential, CoordinationParallel, CoordinationConsensus:
		default:
			return &ValidationError{Path: path, Msg: fmt.Sprintf("coordinate_agents has unrecognized type %q", n.Coordination)}
		}
	case KindRAGPipeline:
		if n.RAG.Query == "" || n.RAG.RetrievalStrategy == "" || len(n.RAG.KnowledgeBases) == 0 {
			return &ValidationError{Path: path, Msg: "rag_pipeline requires query, retrieval_strategy and knowledge_bases"}
		}
	default:
		return &ValidationError{Path: path, Msg: fmt.Sprintf("unrecognized effect kind %q", n.Kind)}
	}
	return nil
}
