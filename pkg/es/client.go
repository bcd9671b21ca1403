// Package es 提供了与 Elasticsearch 交互的客户端功能。
// 索引里保存重复组成员的路径，供审核界面按路径片段过滤积压。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"photokeeper-go/internal/config"
	"photokeeper-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// indexName 在 Init 时记录，后续操作直接使用。
var indexName string

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	indexName = esCfg.IndexName
	return createIndexIfNotExists(esCfg.IndexName)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	// 如果 res.StatusCode 是 200，说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	// 如果 res.StatusCode 是 404，说明索引不存在，需要创建
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 路径按目录分词，支持前缀与片段匹配
	mapping := `{
	  "mappings": {
	    "properties": {
	      "fileId":  { "type": "long" },
	      "groupId": { "type": "long" },
	      "path": {
	        "type": "text",
	        "analyzer": "path_analyzer",
	        "fields": { "keyword": { "type": "keyword" } }
	      }
	    }
	  },
	  "settings": {
	    "analysis": {
	      "analyzer": {
	        "path_analyzer": {
	          "type": "custom",
	          "tokenizer": "path_hierarchy"
	        }
	      }
	    }
	  }
	}`

	createRes, err := ESClient.Indices.Create(indexName, ESClient.Indices.Create.WithBody(strings.NewReader(mapping)))
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		return fmt.Errorf("创建索引 '%s' 失败: %s", indexName, createRes.String())
	}
	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// memberDoc 是写入索引的文档结构。
type memberDoc struct {
	FileID  uint   `json:"fileId"`
	GroupID uint   `json:"groupId"`
	Path    string `json:"path"`
}

// IndexGroupMember 将一个重复组成员的路径写入索引（以文件 id 作为文档 id，幂等）。
func IndexGroupMember(ctx context.Context, fileID, groupID uint, path string) error {
	doc := memberDoc{FileID: fileID, GroupID: groupID, Path: path}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: strconv.FormatUint(uint64(fileID), 10),
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}
	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("索引文档失败: %s", res.String())
	}
	return nil
}

// RemoveGroupMember 从索引中移除一个成员文档。文档不存在不视为错误。
func RemoveGroupMember(ctx context.Context, fileID uint) error {
	req := esapi.DeleteRequest{
		Index:      indexName,
		DocumentID: strconv.FormatUint(uint64(fileID), 10),
	}
	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("删除文档失败: %s", res.String())
	}
	return nil
}

// SearchGroupsByPath 按路径片段检索，返回命中成员所属的重复组 id（去重）。
func SearchGroupsByPath(ctx context.Context, fragment string, limit int) ([]uint, error) {
	if limit <= 0 {
		limit = 100
	}
	query := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"path": fragment,
			},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	res, err := ESClient.Search(
		ESClient.Search.WithContext(ctx),
		ESClient.Search.WithIndex(indexName),
		ESClient.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("检索失败: %s", res.String())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source memberDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析检索结果失败: %w", err)
	}

	seen := make(map[uint]struct{})
	groupIDs := make([]uint, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		if _, ok := seen[hit.Source.GroupID]; ok {
			continue
		}
		seen[hit.Source.GroupID] = struct{}{}
		groupIDs = append(groupIDs, hit.Source.GroupID)
	}
	return groupIDs, nil
}
