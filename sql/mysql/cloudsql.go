// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package mysql

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"ariga.io/maguey/sql/sqlclient"

	cloudmysql "cloud.google.com/go/cloudsqlconn/mysql/mysql"
)

// CloudSQLNet is the network name of the Cloud SQL dialer, registered
// on the MySQL driver the first time a cloudsql+mysql URL is opened.
const CloudSQLNet = "cloudsql-mysql"

var (
	cloudOnce sync.Once
	cloudErr  error
)

// cloudSQL opens clients for Cloud SQL instances using URLs in the format:
//
//	cloudsql+mysql://user:pass@/dbname?instance=project:region:instance
var cloudSQL = sqlclient.OpenerFunc(func(ctx context.Context, u *url.URL, opts ...sqlclient.Option) (*sqlclient.Client, error) {
	cloudOnce.Do(func() {
		// The dialer lives as long as the process.
		_, cloudErr = cloudmysql.RegisterDriver(CloudSQLNet)
	})
	if cloudErr != nil {
		return nil, fmt.Errorf("mysql: register cloud sql dialer: %w", cloudErr)
	}
	return sqlclient.DriverOpener(DriverName, CloudSQLDSN, Open).Open(ctx, u, opts...)
})

// CloudSQLDSN converts a cloudsql+mysql:// URL to the data source name
// of the driver, that dials using the Cloud SQL dialer.
func CloudSQLDSN(u *url.URL) (string, error) {
	q := u.Query()
	instance := q.Get("instance")
	if instance == "" && u.Host != "" {
		instance = u.Host
	}
	if strings.Count(instance, ":") != 2 {
		return "", fmt.Errorf("mysql: invalid cloud sql instance %q, expect project:region:instance", instance)
	}
	q.Del("instance")
	cfg := mysqlConfig(u)
	cfg.Net, cfg.Addr = CloudSQLNet, instance
	if err := params(cfg, q); err != nil {
		return "", err
	}
	return cfg.FormatDSN(), nil
}
