package mtproto

import "testing"

func TestParseSource(t *testing.T) {
	cases := map[string]Source{
		"@ZynCoin":                        {Username: "zyncoin"},
		"https://t.me/zyncoin":            {Username: "zyncoin"},
		"t.me/zyn_portal/":                {Username: "zyn_portal"},
		"https://t.me/+AbCdEf123456":      {InviteHash: "AbCdEf123456"},
		"https://t.me/joinchat/Qwerty_12": {InviteHash: "Qwerty_12"},
	}
	for input, want := range cases {
		got, err := ParseSource(input)
		if err != nil {
			t.Fatalf("%s: не ожидали ошибку: %v", input, err)
		}
		if got != want {
			t.Fatalf("%s: получили %+v, ожидали %+v", input, got, want)
		}
	}
	for _, input := range []string{"", "@ab", "https://example.com/zyn", "t.me/+x", "-1001234567890"} {
		if _, err := ParseSource(input); err == nil {
			t.Fatalf("%s: ожидали ошибку", input)
		}
	}
}
