package postgres

// SetLogIDGenerator swaps the id generator used for new notification logs.
func SetLogIDGenerator(gen func() string) (restore func()) {
	prev := newLogID
	newLogID = gen
	return func() { newLogID = prev }
}
