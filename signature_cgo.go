//go:build cgo

package phargo

import (
	"hash"

	"github.com/golang-fips/openssl/v2"
)

func opensslSHA512() (hash.Hash, error) { return openssl.NewSHA512(), nil }
func opensslSHA256() (hash.Hash, error) { return openssl.NewSHA256(), nil }
func opensslSHA1() (hash.Hash, error)   { return openssl.NewSHA1(), nil }
