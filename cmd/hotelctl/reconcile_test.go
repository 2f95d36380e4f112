package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckResolution(t *testing.T) {
	cases := []struct {
		name         string
		kind         string
		applyRefund  bool
		applyCapture bool
		wantErr      bool
	}{
		{"note only on capture", kindCapture, false, false, false},
		{"note only on refund", kindRefund, false, false, false},
		{"refund entry applies refund", kindRefund, true, false, false},
		{"capture entry applies capture", kindCapture, false, true, false},
		{"capture entry cannot apply refund", kindCapture, true, false, true},
		{"refund entry cannot apply capture", kindRefund, false, true, true},
		{"both flags", kindRefund, true, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkResolution(tc.kind, tc.applyRefund, tc.applyCapture)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
