package internal

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	SchemeS3   = "s3"
	SchemeFile = "file"
)

// Location is a parsed destination such as s3://bucket/prefix or file:///var/archive.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

func (l Location) String() string {
	if l.Scheme == SchemeFile {
		return "file://" + l.Key
	}
	return fmt.Sprintf("%s://%s/%s", l.Scheme, l.Bucket, l.Key)
}

func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("invalid location %q: %w", raw, err)
	}

	switch u.Scheme {
	case SchemeS3:
		if u.Host == "" {
			return Location{}, fmt.Errorf("invalid location %q: missing bucket", raw)
		}
		return Location{
			Scheme: SchemeS3,
			Bucket: u.Host,
			Key:    strings.TrimPrefix(u.Path, "/"),
		}, nil
	case SchemeFile:
		p := u.Host + u.Path
		if p == "" {
			return Location{}, fmt.Errorf("invalid location %q: missing path", raw)
		}
		return Location{
			Scheme: SchemeFile,
			Key:    p,
		}, nil
	default:
		return Location{}, fmt.Errorf("unsupported location scheme: %q", u.Scheme)
	}
}
