package domain

// VerificationMethod is one way a user can prove humanity.
// Weight is in (0, 1] and represents the method's share of full verification.
type VerificationMethod struct {
	ID          string  `json:"id" yaml:"id"`
	DisplayName string  `json:"display_name" yaml:"display_name"`
	Weight      float64 `json:"weight" yaml:"weight"`
}
