package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promokit/core"
	"promokit/engine"
)

const fixture = `{
	"programs": [
		{
			"id": "loyalty",
			"name": "Coffee Loyalty",
			"trigger": "auto",
			"applicability": "both",
			"rules": [
				{"id": "r1", "program_id": "loyalty", "mode": "money", "point_amount": 1}
			],
			"rewards": [
				{
					"id": "ten-off", "program_id": "loyalty", "kind": "discount",
					"required_points": 50, "is_main": true,
					"discount": {"applicability": "order", "mode": "percent", "value": 10}
				}
			]
		}
	],
	"coupons": {
		"WELCOME": {"id": "c1", "program_id": "loyalty", "points": 5}
	}
}`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	src, err := Load(path)
	require.NoError(t, err)

	programs, err := src.FetchPrograms(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, programs, 1)
	assert.Equal(t, core.ProgramID("loyalty"), programs[0].ID)
	require.Len(t, programs[0].Rewards, 1)
	assert.Equal(t, 10.0, programs[0].Rewards[0].Discount.Value)

	res, err := src.RedeemCode(context.Background(), engine.RedeemRequest{Code: "WELCOME", OrderDate: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, core.CouponID("c1"), res.CouponID)
	assert.Equal(t, 5.0, res.Points)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}
