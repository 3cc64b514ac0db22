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

package ticket

import (
	"net/mail"
	"strings"
)

// StyleKey groups senders for presentation only.
type StyleKey string

const (
	StyleGmail     StyleKey = "gmail"
	StyleOutlook   StyleKey = "outlook"
	StyleYahoo     StyleKey = "yahoo"
	StyleApple     StyleKey = "apple"
	StyleCorporate StyleKey = "corporate"
)

var providerDomains = map[string]StyleKey{
	"gmail.com":      StyleGmail,
	"googlemail.com": StyleGmail,
	"outlook.com":    StyleOutlook,
	"hotmail.com":    StyleOutlook,
	"live.com":       StyleOutlook,
	"msn.com":        StyleOutlook,
	"yahoo.com":      StyleYahoo,
	"ymail.com":      StyleYahoo,
	"icloud.com":     StyleApple,
	"me.com":         StyleApple,
	"mac.com":        StyleApple,
}

// ProviderStyleKey classifies the domain of an address. It accepts bare
// addresses and "Name <addr>" forms; anything unrecognised, including
// unparsable input, is StyleCorporate.
func ProviderStyleKey(address string) StyleKey {
	domain := domainOf(address)
	if key, ok := providerDomains[domain]; ok {
		return key
	}
	// Regional variants such as yahoo.co.uk or hotmail.fr.
	for _, prefix := range []struct {
		name string
		key  StyleKey
	}{
		{"yahoo.", StyleYahoo},
		{"hotmail.", StyleOutlook},
		{"outlook.", StyleOutlook},
	} {
		if strings.HasPrefix(domain, prefix.name) {
			return prefix.key
		}
	}
	return StyleCorporate
}

func domainOf(address string) string {
	addr := strings.TrimSpace(address)
	if parsed, err := mail.ParseAddress(addr); err == nil {
		addr = parsed.Address
	}
	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSuffix(addr[at+1:], "."))
}
