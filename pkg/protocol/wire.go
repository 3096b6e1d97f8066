package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/credcheck/pkg/model"
)

// decodeChallenge parses the challenge-generator endpoint's opaque mdata
// field into the puzzle definition the PoW subsystem needs.
func decodeChallenge(mdata string) (model.PoWChallenge, error) {
	var c model.PoWChallenge
	if err := json.Unmarshal([]byte(mdata), &c); err != nil {
		return model.PoWChallenge{}, fmt.Errorf("decode mdata: %w", err)
	}
	return c, nil
}
