package storage

import "github.com/fxamacker/cbor/v2"

// encMode uses Core Deterministic Encoding so identical records produce identical bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("storage: CBOR encoder initialization failed: " + err.Error())
	}
}

type record struct {
	ID             string `cbor:"1,keyasint"`
	Room           string `cbor:"2,keyasint"`
	SenderIdentity string `cbor:"3,keyasint"`
	SenderName     string `cbor:"4,keyasint"`
	Message        string `cbor:"5,keyasint"`
	UnixNano       int64  `cbor:"6,keyasint"`
}

type accountRecord struct {
	ID           string `cbor:"1,keyasint"`
	Username     string `cbor:"2,keyasint"`
	PasswordHash string `cbor:"3,keyasint"`
	UnixNano     int64  `cbor:"4,keyasint"`
}

func marshal(r record) ([]byte, error) { return encMode.Marshal(r) }

func unmarshal(data []byte, r *record) error { return cbor.Unmarshal(data, r) }

func marshalAccount(r accountRecord) ([]byte, error) { return encMode.Marshal(r) }

func unmarshalAccount(data []byte, r *accountRecord) error { return cbor.Unmarshal(data, r) }
