package application

// Display shows conversation output as it becomes available.
type Display interface {
	Partial(text string)
	Utterance(text string)
	Response(text string)
	Failure(err error)
}

type NoopDisplay struct{}

func (NoopDisplay) Partial(string)   {}
func (NoopDisplay) Utterance(string) {}
func (NoopDisplay) Response(string)  {}
func (NoopDisplay) Failure(error)    {}
