// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Version
		wantErr error
	}{
		{"major only", "12", Version{Major: 12, Precision: 1}, nil},
		{"distro", "22.04", Version{Major: 22, Minor: 4, Precision: 2}, nil},
		{"prefixed", "v1.2.3", Version{Major: 1, Minor: 2, Patch: 3, Precision: 3}, nil},
		{"kernel", "6.1.0-13-amd64", Version{Major: 6, Minor: 1, Precision: 3, Extras: "-13-amd64"}, nil},
		{"el kernel", "5.14.0-362.8.1.el9_3.x86_64", Version{Major: 5, Minor: 14, Precision: 3, Extras: "-362.8.1.el9_3.x86_64"}, nil},
		{"empty", "", Version{}, ErrEmptyVersion},
		{"too many", "1.2.3.4", Version{}, ErrTooManyComponents},
		{"word", "rolling", Version{}, ErrNonNumeric},
		{"trailing dot", "9.", Version{}, ErrNonNumeric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompare(t *testing.T) {
	v := func(s string) Version {
		t.Helper()
		out, err := Parse(s)
		require.NoError(t, err)
		return out
	}
	assert.Equal(t, 0, v("9").Compare(v("9.0.0")))
	assert.Equal(t, -1, v("8.10").Compare(v("9")))
	assert.Equal(t, 1, v("5.14.1").Compare(v("5.14")))
	assert.True(t, v("6.1.0-13-amd64").AtLeast(v("4.18")))
	assert.False(t, v("3.10").AtLeast(v("4.18")))
}

func FuzzParse(f *testing.F) {
	for _, s := range []string{"1", "v1.2", "22.04", "6.1.0-13-amd64", "", ".", "1..2", "1.2.3.4", "-1"} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, in string) {
		v, err := Parse(in)
		if err != nil {
			return
		}
		if v.Precision < 1 || v.Precision > 3 {
			t.Fatalf("Parse(%q) precision %d", in, v.Precision)
		}
		again, err := Parse(v.String())
		if err != nil || again.Compare(v) != 0 {
			t.Fatalf("round trip of %q via %q: %+v, %v", in, v.String(), again, err)
		}
	})
}
