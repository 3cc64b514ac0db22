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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"github.com/bcem/deskconsole/internal/models"
)

// FilePersister stores the credential as a JSON file readable only by the
// owner. When a recipient is configured the file is age-encrypted and the
// matching identity is needed to load it.
type FilePersister struct {
	path       string
	recipient  age.Recipient
	identities []age.Identity
}

// NewFilePersister stores plaintext JSON at path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// NewSealedFilePersister stores the credential at path encrypted to
// recipient. Loading requires one of identities.
func NewSealedFilePersister(path string, recipient age.Recipient, identities ...age.Identity) *FilePersister {
	return &FilePersister{path: path, recipient: recipient, identities: identities}
}

// OpenSealedFilePersister reads an age identity file and seals to
// recipientKey, or to the identity's own recipient when recipientKey is
// empty.
func OpenSealedFilePersister(path, recipientKey, identityFile string) (*FilePersister, error) {
	f, err := os.Open(identityFile)
	if err != nil {
		return nil, fmt.Errorf("open identity file: %w", err)
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse identity file %s: %w", identityFile, err)
	}

	var recipient age.Recipient
	switch {
	case strings.TrimSpace(recipientKey) != "":
		recipient, err = age.ParseX25519Recipient(strings.TrimSpace(recipientKey))
		if err != nil {
			return nil, fmt.Errorf("parse recipient: %w", err)
		}
	default:
		x25519, ok := identities[0].(*age.X25519Identity)
		if !ok {
			return nil, fmt.Errorf("identity file %s: first identity is not X25519, set a recipient explicitly", identityFile)
		}
		recipient = x25519.Recipient()
	}

	return NewSealedFilePersister(path, recipient, identities...), nil
}

// Path is the file the credential lives in.
func (p *FilePersister) Path() string { return p.path }

func (p *FilePersister) Load(context.Context) (models.Credential, bool, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.Credential{}, false, nil
	}
	if err != nil {
		return models.Credential{}, false, fmt.Errorf("read credential file: %w", err)
	}

	if p.recipient != nil {
		data, err = p.open(data)
		if err != nil {
			return models.Credential{}, false, err
		}
	}

	var cred models.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return models.Credential{}, false, fmt.Errorf("decode credential file: %w", err)
	}
	return cred, true, nil
}

func (p *FilePersister) Save(_ context.Context, cred models.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	if p.recipient != nil {
		data, err = p.seal(data)
		if err != nil {
			return err
		}
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}

	// Write then rename so a crash never leaves a truncated session file.
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("create temp credential file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod credential file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credential file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("replace credential file: %w", err)
	}
	return nil
}

func (p *FilePersister) Delete(context.Context) error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}

func (p *FilePersister) seal(plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, p.recipient)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *FilePersister) open(ciphertext []byte) ([]byte, error) {
	if len(p.identities) == 0 {
		return nil, errors.New("sealed credential file but no identity configured")
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), p.identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting credential file: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted credential: %w", err)
	}
	return plaintext, nil
}
