// Copyright 2025 Edgewatt Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const blobContentType = "image/jpeg"

// BlobStore writes photos to an Azure blob container.
type BlobStore struct {
	logger    log.Logger
	client    *azblob.Client
	container string
}

// NewBlobStore connects with a storage account connection string and ensures
// the container exists.
func NewBlobStore(logger log.Logger, connString, container string) (*BlobStore, error) {
	client, err := azblob.NewClientFromConnectionString(connString, nil)
	if err != nil {
		return nil, fmt.Errorf("creating blob client: %w", err)
	}
	if _, err := client.CreateContainer(context.Background(), container, nil); err != nil {
		if !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil, fmt.Errorf("creating container %q: %w", container, err)
		}
	} else {
		level.Info(logger).Log("msg", "created blob container", "container", container)
	}
	return &BlobStore{logger: logger, client: client, container: container}, nil
}

func (s *BlobStore) Put(ctx context.Context, name string, data []byte, metadata map[string]string) (string, error) {
	contentType := blobContentType
	opts := &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	}
	if len(metadata) > 0 {
		opts.Metadata = make(map[string]*string, len(metadata))
		for k := range metadata {
			v := metadata[k]
			opts.Metadata[k] = &v
		}
	}
	if _, err := s.client.UploadBuffer(ctx, s.container, name, data, opts); err != nil {
		return "", fmt.Errorf("uploading blob %q: %w", name, err)
	}
	return strings.TrimSuffix(s.client.URL(), "/") + "/" + s.container + "/" + name, nil
}
