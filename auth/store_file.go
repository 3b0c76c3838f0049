// Copyright 2023 StreamNative, Inc.
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

package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/juju/fslock"
	"github.com/pkg/errors"

	"github.com/streamnative/docspan/common"
)

const credentialsFormatVersion = "1"

var (
	ErrNoCredentials        = errors.New("no stored credentials")
	ErrCorruptedCredentials = errors.New("corrupted credentials file")
)

type credentialsContainer struct {
	Version     string       `json:"version"`
	Credentials *Credentials `json:"credentials"`
	Checksum    string       `json:"checksum"`
}

// fileCredentialsStore keeps the credentials in a local file, using a lock
// mechanism to prevent concurrent processes from clobbering each other's
// updates.
type fileCredentialsStore struct {
	path     string
	fileLock *fslock.Lock
}

func NewFileCredentialsStore(path string) CredentialsStore {
	return &fileCredentialsStore{
		path:     path,
		fileLock: fslock.New(path),
	}
}

func (f *fileCredentialsStore) Close() error {
	return nil
}

func (f *fileCredentialsStore) Load() (*Credentials, error) {
	content, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredentials
		}
		return nil, err
	}

	if len(content) == 0 {
		return nil, ErrNoCredentials
	}

	container := credentialsContainer{}
	if err = json.Unmarshal(content, &container); err != nil {
		return nil, ErrCorruptedCredentials
	}
	if container.Version != credentialsFormatVersion || container.Credentials == nil {
		return nil, ErrCorruptedCredentials
	}
	if checksum(container.Credentials) != container.Checksum {
		return nil, ErrCorruptedCredentials
	}
	return container.Credentials, nil
}

func (f *fileCredentialsStore) Store(credentials *Credentials) error {
	// Ensure directory exists
	parentDir := filepath.Dir(f.path)
	if _, err := os.Stat(parentDir); err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(parentDir, 0755); err != nil {
				return err
			}
		} else {
			return err
		}
	}

	if err := f.fileLock.Lock(); err != nil {
		return errors.Wrap(err, "failed to acquire file lock")
	}
	defer func() {
		if err := f.fileLock.Unlock(); err != nil {
			slog.Warn(
				"Failed to release file lock on credentials",
				slog.Any("error", err),
			)
		}
	}()

	content, err := json.Marshal(credentialsContainer{
		Version:     credentialsFormatVersion,
		Credentials: credentials,
		Checksum:    checksum(credentials),
	})
	if err != nil {
		return err
	}

	return os.WriteFile(f.path, content, 0600)
}

func checksum(credentials *Credentials) string {
	content := fmt.Sprintf("%s:%d", credentials.AccessToken, credentials.ExpiresAt)
	return strconv.FormatUint(common.Xxh364([]byte(content)), 16)
}
