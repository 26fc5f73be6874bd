package sqlite

// nilIfEmpty returns nil for empty strings so INSERT sets NULL instead of "".
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
