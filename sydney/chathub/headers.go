package chathub

import (
	"fmt"
	"math/rand/v2"
	"net/http"

	"github.com/google/uuid"
)

const (
	edgeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/113.0.0.0 Safari/537.36 Edg/113.0.1774.50"
	chatReferer   = "https://www.bing.com/search?q=Bing+AI&showconv=1&FORM=hpcodx"
)

func forwardedIP() string {
	return fmt.Sprintf("1.0.0.%d", rand.IntN(256))
}

// socketHeaders are sent on the WebSocket upgrade request.
func socketHeaders(creds Credentials) http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Sec-Ch-Ua", `"Microsoft Edge";v="113", "Chromium";v="113", "Not-A.Brand";v="24"`)
	h.Set("Sec-Ch-Ua-Arch", `"x86"`)
	h.Set("Sec-Ch-Ua-Bitness", `"64"`)
	h.Set("Sec-Ch-Ua-Mobile", "?0")
	h.Set("Sec-Ch-Ua-Platform", `"Windows"`)
	h.Set("Sec-Ch-Ua-Platform-Version", `"15.0.0"`)
	h.Set("X-Ms-Client-Request-Id", uuid.NewString())
	h.Set("X-Ms-Useragent", "azsdk-js-api-client-factory/1.0.0-beta.1 core-rest-pipeline/1.10.0 OS/Win32")
	h.Set("User-Agent", edgeUserAgent)
	h.Set("Referer", chatReferer)
	h.Set("Referrer-Policy", "origin-when-cross-origin")
	h.Set("X-Forwarded-For", forwardedIP())
	if cookie := creds.CookieHeader(); cookie != "" {
		h.Set("Cookie", cookie)
	}
	return h
}

// createHeaders are sent with the conversation create request.
func createHeaders(creds Credentials) http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Cache-Control", "max-age=0")
	h.Set("Sec-Ch-Ua", `"Chromium";v="110", "Not A(Brand";v="24", "Microsoft Edge";v="110"`)
	h.Set("Sec-Ch-Ua-Full-Version", `"110.0.1587.69"`)
	h.Set("Sec-Ch-Ua-Mobile", "?0")
	h.Set("Sec-Ch-Ua-Platform", `"Windows"`)
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("User-Agent", edgeUserAgent)
	h.Set("X-Edge-Shopping-Flag", "1")
	h.Set("X-Forwarded-For", forwardedIP())
	if cookie := creds.CookieHeader(); cookie != "" {
		h.Set("Cookie", cookie)
	}
	return h
}
