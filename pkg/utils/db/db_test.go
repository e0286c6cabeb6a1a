// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package db_test

import (
	"errors"
	"testing"

	"github.com/gardener/housekeeping/pkg/core/config"
	"github.com/gardener/housekeeping/pkg/utils/db"
)

func TestNewFromConfigRequiresDSN(t *testing.T) {
	_, err := db.NewFromConfig(config.DatabaseConfig{}, false)
	if !errors.Is(err, db.ErrInvalidDSN) {
		t.Fatalf("want %v, got %v", db.ErrInvalidDSN, err)
	}
}
