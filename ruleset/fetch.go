package ruleset

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/hashicorp/go-getter"
	"go.uber.org/zap"

	"github.com/teranos/logtap/am"
	"github.com/teranos/logtap/errors"
)

// Fetch downloads a rule file from any go-getter source (local path, http(s),
// git, s3, ...) into dstDir, validates it and returns the saved path.
// A file that does not parse is removed again.
func Fetch(ctx context.Context, src, dstDir string, log *zap.SugaredLogger) (string, Set, error) {
	pwd, err := os.Getwd()
	if err != nil {
		pwd = "."
	}

	detected, err := getter.Detect(src, pwd, getter.Detectors)
	if err != nil {
		return "", Set{}, errors.Wrapf(err, "failed to detect rule source %s", src)
	}

	name, err := targetName(detected)
	if err != nil {
		return "", Set{}, err
	}

	if err := os.MkdirAll(dstDir, am.DefaultDirPermissions); err != nil {
		return "", Set{}, errors.Wrapf(err, "failed to create rules directory %s", dstDir)
	}
	dst := filepath.Join(dstDir, name)

	if log != nil {
		log.Infow("Fetching rule file",
			"source", src,
			"detected", detected,
			"destination", dst,
		)
	}

	client := &getter.Client{
		Ctx:     ctx,
		Src:     detected,
		Dst:     dst,
		Pwd:     pwd,
		Mode:    getter.ClientModeFile,
		Getters: getter.Getters,
	}
	if err := client.Get(); err != nil {
		return "", Set{}, errors.Wrapf(err, "failed to fetch rule file %s", src)
	}

	set, err := LoadFile(dst)
	if err != nil {
		os.Remove(dst)
		return "", Set{}, err
	}
	return dst, set, nil
}

// targetName derives the local file name from a detected source URL
func targetName(detected string) (string, error) {
	// Forced getters look like git::https://...
	if _, rest, ok := cutForced(detected); ok {
		detected = rest
	}
	u, err := url.Parse(detected)
	if err != nil {
		return "", errors.Wrapf(err, "failed to parse rule source %s", detected)
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", errors.NewInvalidRequestError("rule source %s does not name a file", detected)
	}
	if !IsRuleFile(name) {
		name += ".yaml"
	}
	return name, nil
}

func cutForced(src string) (string, string, bool) {
	for i := 0; i+1 < len(src); i++ {
		if src[i] == ':' && src[i+1] == ':' {
			return src[:i], src[i+2:], true
		}
		if src[i] == '/' {
			break
		}
	}
	return "", src, false
}
