package tools

// Result is the unified return type from tool execution.
type Result struct {
	ForLLM  string `json:"for_llm"`  // content sent to the LLM
	Silent  bool   `json:"silent"`   // suppress user-facing emission
	IsError bool   `json:"is_error"` // marks error
	Async   bool   `json:"async"`    // running asynchronously
	Err     error  `json:"-"`        // internal error (not serialized)

	// Media lists file paths produced by the tool (screenshots, generated
	// images) that channels should attach to the next outbound message.
	Media []string `json:"-"`
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func SilentResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM, Silent: true}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

func AsyncResult(message string) *Result {
	return &Result{ForLLM: message, Async: true}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}

func (r *Result) WithMedia(paths ...string) *Result {
	r.Media = append(r.Media, paths...)
	return r
}
