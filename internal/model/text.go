package model

// Text encodings let the enums and partition keys appear by name in JSON
// and YAML.

func (t HopType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *HopType) UnmarshalText(b []byte) error {
	v, err := ParseHopType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (k WriteKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *WriteKind) UnmarshalText(b []byte) error {
	v, err := ParseWriteKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (r CloseReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// MarshalText renders the partition key; the default partition is "".
func (a OriginAttributes) MarshalText() ([]byte, error) {
	return []byte(a.Key()), nil
}

func (a *OriginAttributes) UnmarshalText(b []byte) error {
	v, err := ParseOriginAttributes(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
