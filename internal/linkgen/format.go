package linkgen

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	maxExpireSeconds = 315360000 // 10 years
	infinite         = "♾️"
)

var byteUnits = [...]string{"B", "KB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

// byteConvert renders a byte count the way the client-facing formatter does
// (§4.I `sub.format`), e.g. 1572864 -> "1.50 MB".
func byteConvert(n int64) string {
	if n == 0 {
		return "0B"
	}
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	f := float64(n)
	i := int(math.Floor(math.Log(f) / math.Log(1024)))
	if i >= len(byteUnits) {
		i = len(byteUnits) - 1
	}
	p := math.Pow(1024, float64(i))
	return fmt.Sprintf("%s%.2f %s", sign, f/p, byteUnits[i])
}

// expireSeconds resolves a limit_expire unix value against now: negative
// stays as a duration-from-zero (expiry clock not started), positive becomes
// the remaining duration to now.
func expireSeconds(limitExpire int64, now time.Time) int64 {
	if limitExpire < 0 {
		return -limitExpire
	}
	return limitExpire - now.Unix()
}

// timeConvert renders a limit_expire value as its first two non-zero units
// of d/h/min/sec joined by ", ", e.g. "2 d, 3 h" (§4.I `expire_in`);
// callers only call this when limit_expire != 0.
func timeConvert(limitExpire int64, now time.Time) string {
	secs := expireSeconds(limitExpire, now)
	if secs < 0 {
		secs = 0
	}
	d := secs / 86400
	secs %= 86400
	h := secs / 3600
	secs %= 3600
	m := secs / 60
	secs %= 60

	var parts []string
	if d > 0 {
		parts = append(parts, fmt.Sprintf("%d d", d))
	}
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%d h", h))
	}
	if m > 0 {
		parts = append(parts, fmt.Sprintf("%d min", m))
	}
	if secs > 0 {
		parts = append(parts, fmt.Sprintf("%d sec", secs))
	}
	if len(parts) == 0 {
		return "0 sec"
	}
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, ", ")
}

// dayConvert renders a limit_expire value as whole days remaining (§4.I
// `expire_in_days`); callers only call this when limit_expire != 0.
func dayConvert(limitExpire int64, now time.Time) int64 {
	return expireSeconds(limitExpire, now) / 86400
}

// dateConvert renders a limit_expire value as an absolute UTC timestamp
// (§4.I `expire_date`), clamped to 10 years out; callers only call this when
// limit_expire != 0.
func dateConvert(limitExpire int64, now time.Time) string {
	secs := expireSeconds(limitExpire, now)
	if secs > maxExpireSeconds {
		secs = maxExpireSeconds
	}
	if secs < 0 {
		secs = 0
	}
	return now.Add(time.Duration(secs) * time.Second).Format("2006-01-02 15:04:05 UTC")
}

func emojiBool(b bool) string {
	if b {
		return "✅"
	}
	return "❌"
}
