// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"errors"
	"reflect"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
)

type QuickConfig = quick.Config

// QuickCheck is similar to testing/quick.Check, but also feeds fn each of the statics, so that
// known-interesting inputs are always covered no matter what the generator comes up with.
func QuickCheck(t *testing.T, fn interface{}, cfg QuickConfig, statics ...[]interface{}) {
	t.Helper()
	err := quick.Check(fn, &cfg)
	assert.NoError(t, err)
	var setupErr quick.SetupError
	if errors.As(err, &setupErr) {
		return
	}

	fnVal := reflect.ValueOf(fn)
	numIn := fnVal.Type().NumIn()
	for i, static := range statics {
		if len(static) != numIn {
			t.Errorf("static#%d has %d args, but the function takes %d args", i, len(static), numIn)
			continue
		}
		args := make([]reflect.Value, numIn)
		for j := range args {
			args[j] = reflect.ValueOf(static[j])
		}
		if !fnVal.Call(args)[0].Bool() {
			t.Errorf("static%v", &quick.CheckError{
				Count: i + 1,
				In:    static,
			})
		}
	}
}
