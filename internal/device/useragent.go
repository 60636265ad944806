package device

import (
	"regexp"
	"strings"
)

// Class is the coarse form factor of a client.
type Class string

const (
	ClassUnknown Class = "unknown"
	ClassDesktop Class = "desktop"
	ClassMobile  Class = "mobile"
	ClassTablet  Class = "tablet"
	ClassBot     Class = "bot"
)

// Agent is what could be recognised from a user-agent string. Unresolved fields are empty.
type Agent struct {
	Browser        string
	BrowserVersion string
	OS             string
	OSVersion      string
	Class          Class
	Vendor         string
	Model          string
}

type familyRule struct {
	name string
	re   *regexp.Regexp // first submatch, if any, is the version
}

type modelRule struct {
	vendor string
	model  string // fixed model; empty means use the first submatch
	class  Class
	re     *regexp.Regexp
}

// Order matters: Chromium derivatives advertise "Chrome/" and every WebKit browser advertises "Safari/".
var browserRules = []familyRule{
	{"Edge", regexp.MustCompile(`\bEdg(?:e|A|iOS)?/([\d.]+)`)},
	{"Opera", regexp.MustCompile(`\b(?:OPR|Opera)/([\d.]+)`)},
	{"Samsung Internet", regexp.MustCompile(`\bSamsungBrowser/([\d.]+)`)},
	{"Firefox", regexp.MustCompile(`\b(?:Firefox|FxiOS)/([\d.]+)`)},
	{"Chrome", regexp.MustCompile(`\b(?:Chrome|CriOS)/([\d.]+)`)},
	{"Safari", regexp.MustCompile(`\bVersion/([\d.]+).*\bSafari/`)},
	{"Internet Explorer", regexp.MustCompile(`\bMSIE ([\d.]+)|\bTrident/.*\brv:([\d.]+)`)},
}

var osRules = []familyRule{
	{"iOS", regexp.MustCompile(`\b(?:iPhone|iPad|iPod)\b.*?\bOS (\d+(?:_\d+)*)`)},
	{"Android", regexp.MustCompile(`\bAndroid ([\d.]+)`)},
	{"Windows", regexp.MustCompile(`\bWindows NT ([\d.]+)`)},
	{"Chrome OS", regexp.MustCompile(`\bCrOS\b`)},
	{"macOS", regexp.MustCompile(`\bMac OS X (\d+(?:[_.]\d+)*)`)},
	{"Linux", regexp.MustCompile(`\bLinux\b`)},
}

var modelRules = []modelRule{
	{"Apple", "iPad", ClassTablet, regexp.MustCompile(`\biPad\b`)},
	{"Apple", "iPhone", ClassMobile, regexp.MustCompile(`\biPhone\b`)},
	{"Apple", "iPod", ClassMobile, regexp.MustCompile(`\biPod\b`)},
	{"Apple", "Mac", ClassDesktop, regexp.MustCompile(`\bMacintosh\b`)},
	{"Samsung", "", "", regexp.MustCompile(`\b(SM-[A-Z0-9]+)\b`)},
	{"Google", "", "", regexp.MustCompile(`\b(Pixel(?: [\w]+)*?)(?:;| Build|\))`)},
	{"Huawei", "", "", regexp.MustCompile(`\bHUAWEI[ _-]?([\w-]+)`)},
	{"Xiaomi", "", "", regexp.MustCompile(`\b((?:Redmi|Mi|POCO) [\w ]+?)(?:;| Build|\))`)},
	{"OnePlus", "", "", regexp.MustCompile(`\b(ONEPLUS [\w]+)`)},
}

var (
	botRe    = regexp.MustCompile(`(?i)bot\b|crawler|spider|slurp|headless|curl/|wget/|python-requests|go-http-client|okhttp`)
	mobileRe = regexp.MustCompile(`\bMobi`)
	tabletRe = regexp.MustCompile(`(?i)\btablet\b`)
)

var windowsVersions = map[string]string{
	"10.0": "10",
	"6.3":  "8.1",
	"6.2":  "8",
	"6.1":  "7",
}

// ParseUserAgent classifies ua using local pattern tables. It never fails; unknown parts stay empty.
func ParseUserAgent(ua string) Agent {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return Agent{Class: ClassUnknown}
	}
	var a Agent
	a.Browser, a.BrowserVersion = matchFamily(browserRules, ua)
	a.OS, a.OSVersion = matchFamily(osRules, ua)
	switch a.OS {
	case "iOS", "macOS":
		a.OSVersion = strings.ReplaceAll(a.OSVersion, "_", ".")
	case "Windows":
		if v, ok := windowsVersions[a.OSVersion]; ok {
			a.OSVersion = v
		}
	}

	var ruleClass Class
	for _, r := range modelRules {
		m := r.re.FindStringSubmatch(ua)
		if m == nil {
			continue
		}
		a.Vendor = r.vendor
		a.Model = r.model
		if a.Model == "" && len(m) > 1 {
			a.Model = strings.TrimSpace(m[1])
		}
		ruleClass = r.class
		break
	}
	a.Class = classify(ua, a, ruleClass)
	return a
}

func matchFamily(rules []familyRule, ua string) (string, string) {
	for _, r := range rules {
		m := r.re.FindStringSubmatch(ua)
		if m == nil {
			continue
		}
		for _, v := range m[1:] {
			if v != "" {
				return r.name, v
			}
		}
		return r.name, ""
	}
	return "", ""
}

func classify(ua string, a Agent, ruleClass Class) Class {
	switch {
	case botRe.MatchString(ua):
		return ClassBot
	case ruleClass != "":
		return ruleClass
	case tabletRe.MatchString(ua):
		return ClassTablet
	case a.OS == "Android" && !mobileRe.MatchString(ua):
		return ClassTablet
	case mobileRe.MatchString(ua):
		return ClassMobile
	case a.OS != "" || a.Browser != "":
		return ClassDesktop
	default:
		return ClassUnknown
	}
}
