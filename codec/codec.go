package codec

// Codec encodes/decodes arbitrary values to []byte for storage.
// Decode writes into dest, which must be a non-nil pointer.
//
// One engine instance carries one Codec; every entry in both tiers is the
// codec's output, so tiers never disagree about the byte format.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, dest any) error
}
