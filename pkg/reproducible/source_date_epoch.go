// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package reproducible implements https://reproducible-builds.org/specs/source-date-epoch/.
package reproducible

import (
	"os"
	"strconv"
	"sync"
	"time"
)

const EnvVar = "SOURCE_DATE_EPOCH"

//nolint:gochecknoglobals // Can't be 'const'.
var (
	nowOnce sync.Once
	now     time.Time
)

// Parse parses the value of $SOURCE_DATE_EPOCH.  ok is false if val is empty or is not an integer
// number of seconds.
func Parse(val string) (_ time.Time, ok bool) {
	secs, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0).UTC(), true
}

// Now returns the time that the build is taking place at: $SOURCE_DATE_EPOCH if it is set (as it
// is by dpkg-buildpackage, from debian/changelog), or else the current time.  It returns the same
// value for the life of the process.
func Now() time.Time {
	nowOnce.Do(func() {
		var ok bool
		if now, ok = Parse(os.Getenv(EnvVar)); !ok {
			now = time.Now()
		}
	})
	return now
}
