// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package registry

import "github.com/hibiken/asynq"

// TaskRegistry is the default registry for task handlers.
var TaskRegistry = New[string, asynq.Handler]()

// ModelRegistry is the default registry for database models, which can be
// queried from the command-line.
var ModelRegistry = New[string, any]()
