// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	minOTPLength = 4
	maxOTPLength = 9
)

// otpGenerator produces numeric one-time passcodes of a fixed number of
// digits. Codes never start with a zero so every code is a positive
// integer with exactly length digits.
type otpGenerator struct {
	length int
}

func newOTPGenerator(length int) (*otpGenerator, error) {
	if length < minOTPLength || length > maxOTPLength {
		return nil, fmt.Errorf("otp length %d outside [%d, %d]", length, minOTPLength, maxOTPLength)
	}
	return &otpGenerator{length: length}, nil
}

// bounds returns the smallest and largest code with g.length digits.
func (g *otpGenerator) bounds() (int64, int64) {
	lo := int64(1)
	for i := 1; i < g.length; i++ {
		lo *= 10
	}
	return lo, lo*10 - 1
}

func (g *otpGenerator) generate() (int, error) {
	lo, hi := g.bounds()
	n, err := rand.Int(rand.Reader, big.NewInt(hi-lo+1))
	if err != nil {
		return 0, fmt.Errorf("problem generating otp: %v", err)
	}
	return int(lo + n.Int64()), nil
}
