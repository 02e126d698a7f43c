// Command lfsload puts an lfsd instance under load over HTTP.
//
// Each round uploads a blob of random size tagged with its md5, reads it
// back and checks the hash, patches its attributes, and finally deletes it.
package main

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"flag"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	numGoroutines = flag.Int("n", 20, "number of concurrent rounds")
	rounds        = flag.Int("r", 1000, "total number of rounds")
	maxUpload     = flag.Int("z", 10, "max blob size in MB")
	urlpath       = flag.String("url", "http://localhost:14100", "base url of service to test")
	apiKey        = flag.String("key", "", "API key to send with requests")
)

func main() {
	flag.Parse()
	var (
		g         errgroup.Group
		failed    int64
		totalsize int64
		starttime = time.Now()
	)
	g.SetLimit(*numGoroutines)
	for i := 0; i < *rounds; i++ {
		g.Go(func() error {
			size, err := round()
			if err != nil {
				atomic.AddInt64(&failed, 1)
				log.WithError(err).Errorln("round failed")
				return nil
			}
			atomic.AddInt64(&totalsize, size)
			return nil
		})
	}
	g.Wait()

	d := time.Since(starttime)
	log.WithFields(log.Fields{
		"rounds": *rounds,
		"failed": failed,
		"bytes":  totalsize,
		"time":   d,
	}).Infof("%f MB/s", float64(totalsize)/1e6/d.Seconds())
}

func round() (int64, error) {
	content := make([]byte, rand.Intn(*maxUpload*1000000+1))
	rand.Read(content)
	h := md5.Sum(content)
	sum := hex.EncodeToString(h[:])

	resp, err := do("POST", "/blob?md5="+sum, bytes.NewReader(content), 201)
	if err != nil {
		return 0, err
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return 0, errors.New("no Location returned on POST")
	}
	id := strings.TrimPrefix(location, "/blob/")

	resp, err = do("GET", location, nil, 200)
	if err != nil {
		return 0, err
	}
	h2 := md5.New()
	io.Copy(h2, resp.Body)
	resp.Body.Close()
	if got := hex.EncodeToString(h2.Sum(nil)); got != sum {
		return 0, errors.Errorf("%s: hash mismatch, got %s, expected %s", id, got, sum)
	}

	patch, _ := json.Marshal(map[string]string{"checked": time.Now().Format(time.RFC3339)})
	if _, err = do("PATCH", "/info/"+id, bytes.NewReader(patch), 204); err != nil {
		return 0, err
	}
	if _, err = do("DELETE", "/item/"+id, nil, 204); err != nil {
		return 0, err
	}
	log.WithField("id", id).Debugf("round done, %d bytes", len(content))
	return int64(len(content)), nil
}

// do sends a request and checks the status. The body of the returned
// response is closed unless the caller expects content.
func do(verb, route string, body io.Reader, expstatus int) (*http.Response, error) {
	req, err := http.NewRequest(verb, *urlpath+route, body)
	if err != nil {
		return nil, err
	}
	if *apiKey != "" {
		req.Header.Set("X-Api-Key", *apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, route)
	}
	if resp.StatusCode != expstatus {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, errors.Errorf("%s %s: received status %d: %s", verb, route, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if verb != "GET" {
		resp.Body.Close()
	}
	return resp, nil
}
