// Package services contains the server-side business logic of the auth
// core: the refresh and reset token stores, the session registry, and
// AuthService, which orchestrates them per flow.
package services

import (
	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// opaqueToken is a freshly generated token: the value handed to the client,
// its storage digest, and the id of the record it will live in.
type opaqueToken struct {
	id    string
	value string
	hash  string
}

func newOpaqueToken() (opaqueToken, error) {
	value, err := common.MakeRandHexString(common.TokenSize)
	if err != nil {
		return opaqueToken{}, oops.Code("TOKEN_GENERATE_FAILED").Wrap(err)
	}
	return opaqueToken{id: uuid.NewString(), value: value, hash: common.HashToken(value)}, nil
}
