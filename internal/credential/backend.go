// Copyright (c) 2026 John Earle
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://github.com/yourusername/bcem/blob/main/LICENSE
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Backend describes where a Store keeps its credential.
type Backend struct {
	// Kind is file, redis, postgres or memory. Empty means file.
	Kind string
	// Path, Recipient and IdentityFile configure the file backend; an
	// identity file turns on age sealing.
	Path         string
	Recipient    string
	IdentityFile string
	// Profile names the session in redis and postgres.
	Profile string
	Redis   redis.Cmdable
	DB      DB
}

// OpenPersister builds the Persister b describes.
func OpenPersister(ctx context.Context, b Backend) (Persister, error) {
	switch b.Kind {
	case "", "file":
		if b.Path == "" {
			return nil, errors.New("file session backend needs a path")
		}
		if b.IdentityFile == "" {
			return NewFilePersister(b.Path), nil
		}
		p, err := OpenSealedFilePersister(b.Path, b.Recipient, b.IdentityFile)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "memory":
		return NewMemoryPersister(), nil
	case "redis":
		if b.Redis == nil {
			return nil, errors.New("redis session backend needs a client")
		}
		return NewRedisPersister(b.Redis, b.Profile), nil
	case "postgres":
		if b.DB == nil {
			return nil, errors.New("postgres session backend needs a database")
		}
		p, err := NewPostgresPersister(ctx, b.DB, b.Profile)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", b.Kind)
	}
}
