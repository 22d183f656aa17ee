// Copyright 2026 The Circles Authors
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

package test

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/matrix-org/gomatrixserverlib/spec"
)

var (
	userIDCounter = int64(0)

	serverName = spec.ServerName("test")
)

type User struct {
	ID        string
	Localpart string
	srvName   spec.ServerName
}

type UserOpt func(*User)

func WithServerName(srvName spec.ServerName) UserOpt {
	return func(u *User) {
		u.srvName = srvName
	}
}

func WithLocalpart(localpart string) UserOpt {
	return func(u *User) {
		u.Localpart = localpart
	}
}

func NewUser(t *testing.T, opts ...UserOpt) *User {
	counter := atomic.AddInt64(&userIDCounter, 1)
	var u User
	for _, opt := range opts {
		opt(&u)
	}
	if u.srvName == "" {
		u.srvName = serverName
	}
	if u.Localpart == "" {
		u.Localpart = strconv.Itoa(int(counter))
	}
	u.ID = fmt.Sprintf("@%s:%s", u.Localpart, u.srvName)
	t.Logf("NewUser: created user %s", u.ID)
	return &u
}

func (u *User) ServerName() spec.ServerName {
	return u.srvName
}
