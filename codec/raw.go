package codec

import "fmt"

// Bytes is an identity codec for []byte values. Encode passes the slice
// through unchanged; Decode copies into a *[]byte dest. Useful when the
// caller already holds serialized data and only needs tiering.
type Bytes struct{}

func (Bytes) Encode(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("bytes codec: want []byte, got %T", v)
	}
	return b, nil
}

func (Bytes) Decode(b []byte, dest any) error {
	p, ok := dest.(*[]byte)
	if !ok {
		return fmt.Errorf("bytes codec: want *[]byte dest, got %T", dest)
	}
	*p = b
	return nil
}

// String is a trivial codec for Go string values. By convention this
// assumes UTF-8 and performs no validation.
type String struct{}

func (String) Encode(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("string codec: want string, got %T", v)
	}
	return []byte(s), nil
}

func (String) Decode(b []byte, dest any) error {
	p, ok := dest.(*string)
	if !ok {
		return fmt.Errorf("string codec: want *string dest, got %T", dest)
	}
	*p = string(b)
	return nil
}
