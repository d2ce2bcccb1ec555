package postgres

// Option настраивает Store и созданные на нём репозитории.
type Option func(*options)

type options struct {
	optimisticLocking bool
}

// WithOptimisticLocking включает проверку версии в UPDATE товаров и заказов.
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
