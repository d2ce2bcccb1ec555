package memory

// Option настраивает in-memory репозиторий.
type Option func(*options)

type options struct {
	optimisticLocking bool
}

// WithOptimisticLocking включает проверку версии при Update.
// По умолчанию Update перезаписывает запись без проверки.
func WithOptimisticLocking() Option {
	return func(o *options) {
		o.optimisticLocking = true
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
