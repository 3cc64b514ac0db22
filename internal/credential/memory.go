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
	"sync"

	"github.com/bcem/deskconsole/internal/models"
)

// MemoryPersister keeps the credential in process memory.
type MemoryPersister struct {
	mu    sync.Mutex
	cred  models.Credential
	saved bool
}

// NewMemoryPersister returns an empty in-memory persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (m *MemoryPersister) Load(context.Context) (models.Credential, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred, m.saved, nil
}

func (m *MemoryPersister) Save(_ context.Context, cred models.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = cred
	m.saved = true
	return nil
}

func (m *MemoryPersister) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = models.Credential{}
	m.saved = false
	return nil
}
