// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package redisutil

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisClientFromURL creates a new Redis client based on the provided URL.
// The URL scheme can be either `redis` or `redis+sentinel`. An empty URL yields a nil client.
func RedisClientFromURL(redisUrl string) (redis.UniversalClient, error) {
	if redisUrl == "" {
		return nil, nil
	}
	u, err := url.Parse(redisUrl)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "redis+sentinel" {
		redisOptions, err := parseFailoverRedisUrl(u)
		if err != nil {
			return nil, err
		}
		return redis.NewFailoverClient(redisOptions), nil
	}
	redisOptions, err := redis.ParseURL(redisUrl)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(redisOptions), nil
}

// Example:
//
//	redis+sentinel://:<password>@<host1>:<port1>,<host2>:<port2>/<master_name>/<db_number>?dial_timeout=3s
func parseFailoverRedisUrl(u *url.URL) (*redis.FailoverOptions, error) {
	o := &redis.FailoverOptions{}
	if u.User != nil {
		if password, ok := u.User.Password(); ok {
			o.SentinelPassword = password
			o.Password = password
		}
	}
	for _, urlHost := range strings.Split(u.Host, ",") {
		host, port, err := net.SplitHostPort(urlHost)
		if err != nil {
			host, port = urlHost, ""
		}
		if host == "" {
			host = "localhost"
		}
		if port == "" {
			port = "26379"
		}
		o.SentinelAddrs = append(o.SentinelAddrs, net.JoinHostPort(host, port))
	}
	path := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	switch len(path) {
	case 1:
		o.MasterName = path[0]
	case 2:
		o.MasterName = path[0]
		db, err := strconv.Atoi(path[1])
		if err != nil {
			return nil, fmt.Errorf("redis: invalid database number: %q", path[1])
		}
		o.DB = db
	case 0:
		return nil, fmt.Errorf("redis: master name is required")
	default:
		return nil, fmt.Errorf("redis: invalid URL path: %s", u.Path)
	}
	query := u.Query()
	for name, target := range map[string]*time.Duration{
		"dial_timeout":  &o.DialTimeout,
		"read_timeout":  &o.ReadTimeout,
		"write_timeout": &o.WriteTimeout,
	} {
		value := query.Get(name)
		if value == "" {
			continue
		}
		duration, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("redis: invalid %s duration: %w", name, err)
		}
		*target = duration
	}
	return o, nil
}
