// Package nfsurl parses nfs:// URLs of the form
//
//	nfs://[user@]server[:port]/export/path[?key=value&...]
//
// The whole URL path names the export to mount. Query options are decoded
// with mapstructure and range-checked with validator; unknown keys are an
// error rather than silently ignored.
package nfsurl

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// Scheme is the only URL scheme accepted by Parse.
const Scheme = "nfs"

// ErrInvalidURL is wrapped by every error returned from Parse.
var ErrInvalidURL = errors.New("invalid nfs url")

var validate = validator.New()

// Options are the recognised query parameters. Zero values mean "not set".
type Options struct {
	UID           *uint32 `mapstructure:"uid"`
	GID           *uint32 `mapstructure:"gid"`
	Version       int     `mapstructure:"version" validate:"omitempty,min=2,max=4"`
	NFSPort       int     `mapstructure:"nfsport" validate:"omitempty,min=1,max=65535"`
	MountPort     int     `mapstructure:"mountport" validate:"omitempty,min=1,max=65535"`
	Timeo         int     `mapstructure:"timeo" validate:"omitempty,min=1"`
	ReaddirBuffer int     `mapstructure:"readdir_buffer" validate:"omitempty,min=1024,max=4194304"`
	RSize         int     `mapstructure:"rsize" validate:"omitempty,min=512"`
	WSize         int     `mapstructure:"wsize" validate:"omitempty,min=512"`
	Retrans       int     `mapstructure:"retrans" validate:"omitempty,min=0"`
	Sec           string  `mapstructure:"sec" validate:"omitempty,oneof=sys krb5 krb5i krb5p"`
}

// URL is a parsed nfs:// URL.
type URL struct {
	User    string
	Server  string
	Port    int // port given in the authority, 0 if absent
	Export  string
	Options Options
}

// Timeout returns the timeo option as a duration, or 0 when unset.
func (u *URL) Timeout() time.Duration {
	return time.Duration(u.Options.Timeo) * time.Millisecond
}

// NFSPort returns the port of the NFS service when it was fixed by the
// URL, either through nfsport or the authority port. 0 means "ask portmap".
func (u *URL) NFSPort() int {
	if u.Options.NFSPort != 0 {
		return u.Options.NFSPort
	}
	return u.Port
}

// Parse parses raw into a URL.
//
// The input must be valid UTF-8 without control characters. The export path
// is percent-decoded; an empty path means "/".
func Parse(raw string) (*URL, error) {
	if !utf8.ValidString(raw) {
		return nil, fmt.Errorf("%w: not valid UTF-8", ErrInvalidURL)
	}
	if i := strings.IndexFunc(raw, unicode.IsControl); i >= 0 {
		return nil, fmt.Errorf("%w: control character at offset %d", ErrInvalidURL, i)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !strings.EqualFold(parsed.Scheme, Scheme) {
		return nil, fmt.Errorf("%w: scheme must be %q, got %q", ErrInvalidURL, Scheme, parsed.Scheme)
	}
	if parsed.Opaque != "" {
		return nil, fmt.Errorf("%w: missing // after scheme", ErrInvalidURL)
	}

	u := &URL{Server: parsed.Hostname(), Export: parsed.Path}
	if u.Server == "" {
		return nil, fmt.Errorf("%w: missing server", ErrInvalidURL)
	}
	if parsed.User != nil {
		u.User = parsed.User.Username()
	}
	if p := parsed.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("%w: invalid port %q", ErrInvalidURL, p)
		}
		u.Port = port
	}
	if u.Export == "" {
		u.Export = "/"
	}

	query, err := url.ParseQuery(parsed.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if err := decodeOptions(query, &u.Options); err != nil {
		return nil, err
	}

	return u, nil
}

func decodeOptions(query url.Values, opts *Options) error {
	raw := make(map[string]any, len(query))
	for key, values := range query {
		// the last occurrence wins, as with mount(8) options
		raw[strings.ToLower(key)] = values[len(values)-1]
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           opts,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if err := validate.Struct(opts); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("%w: option %s=%v fails %q", ErrInvalidURL,
				strings.ToLower(e.Field()), e.Value(), e.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return nil
}

// Query renders the options that are set as url.Values.
func (o *Options) Query() url.Values {
	q := url.Values{}
	setInt := func(key string, v int) {
		if v != 0 {
			q.Set(key, strconv.Itoa(v))
		}
	}
	if o.UID != nil {
		q.Set("uid", strconv.FormatUint(uint64(*o.UID), 10))
	}
	if o.GID != nil {
		q.Set("gid", strconv.FormatUint(uint64(*o.GID), 10))
	}
	setInt("version", o.Version)
	setInt("nfsport", o.NFSPort)
	setInt("mountport", o.MountPort)
	setInt("timeo", o.Timeo)
	setInt("readdir_buffer", o.ReaddirBuffer)
	setInt("rsize", o.RSize)
	setInt("wsize", o.WSize)
	setInt("retrans", o.Retrans)
	if o.Sec != "" {
		q.Set("sec", o.Sec)
	}
	return q
}

// String renders the URL back in canonical form with sorted query keys.
func (u *URL) String() string {
	host := u.Server
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if u.Port != 0 {
		host += ":" + strconv.Itoa(u.Port)
	}

	out := url.URL{Scheme: Scheme, Host: host, Path: u.Export}
	if u.User != "" {
		out.User = url.User(u.User)
	}

	q := u.Options.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(q.Get(k)))
	}
	out.RawQuery = strings.Join(parts, "&")

	return out.String()
}
