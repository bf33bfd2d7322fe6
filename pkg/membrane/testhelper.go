package membrane

// Tamper forcibly replaces an envelope's payload without resealing it.
// Test hook for exercising integrity failures in consumers; production
// code has no reason to call it.
func Tamper(s *Sealed, payload any) {
	s.payload = payload
}
