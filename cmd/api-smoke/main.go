package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/auth"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/config"
)

// 针对运行中的服务做一遍接口冒烟，用户 ID 默认与 cmd/seed 的导师、学员一致
func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file")
	baseURL := pflag.String("base", "http://localhost:8080", "public server url")
	adminURL := pflag.String("admin", "http://localhost:8081", "admin server url")
	mentorID := pflag.Int64("mentor", 2, "mentor user id")
	menteeID := pflag.Int64("mentee", 3, "mentee user id")
	burst := pflag.Int("burst", 40, "requests sent when probing the rate limiter")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	mentorTok, err := auth.GenerateToken(&cfg.JWT, *mentorID, "", "MENTOR", time.Hour)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}
	menteeTok, _ := auth.GenerateToken(&cfg.JWT, *menteeID, "", "MENTEE", time.Hour)

	fmt.Println("==========================================")
	fmt.Println("    接口冒烟测试")
	fmt.Println("==========================================")

	// 1. 健康检查
	fmt.Println("\n1. 健康检查...")
	report(httpDo("GET", *baseURL+"/api/health", nil, ""))

	// 2. 导师通讯录
	fmt.Println("\n2. 导师通讯录...")
	report(httpDo("GET", *baseURL+"/api/contacts", nil, mentorTok))

	// 3. 创建会话
	fmt.Println("\n3. 导师与学员的会话...")
	convResp, err := httpDo("POST", *baseURL+"/api/conversations", map[string]int64{"otherUserId": *menteeID}, mentorTok)
	if err != nil {
		fmt.Printf("   失败: %v\n", err)
		return
	}
	convID := int64(dataField(convResp, "id"))
	fmt.Printf("   会话 ID: %d\n", convID)

	// 4. 发消息
	fmt.Println("\n4. 导师发消息...")
	msgPath := fmt.Sprintf("%s/api/direct-messages/%d", *baseURL, convID)
	report(httpDo("POST", msgPath, map[string]string{"content": "smoke test " + time.Now().Format(time.RFC3339)}, mentorTok))

	// 5. 学员标记已读再拉历史
	fmt.Println("\n5. 学员标记已读...")
	report(httpDo("POST", msgPath+"/read", nil, menteeTok))
	fmt.Println("\n6. 学员拉取历史...")
	report(httpDo("GET", msgPath+"?limit=5", nil, menteeTok))

	// 7. 管理端在线状态与指标
	fmt.Println("\n7. 管理端查询学员在线状态...")
	report(httpDo("GET", fmt.Sprintf("%s/api/presence/%d", *adminURL, *menteeID), nil, ""))

	// 8. 限流
	fmt.Printf("\n8. 发送 %d 个快速请求测试限流...\n", *burst)
	success, limited := 0, 0
	for i := 0; i < *burst; i++ {
		status, _, err := send("GET", *baseURL+"/api/contacts", nil, mentorTok)
		if err != nil {
			continue
		}
		switch status {
		case http.StatusOK:
			success++
		case http.StatusTooManyRequests:
			limited++
		}
	}
	fmt.Printf("   成功: %d, 限流: %d\n", success, limited)

	fmt.Println("\n==========================================")
	fmt.Println("测试完成！")
	fmt.Println("==========================================")
}

func report(resp map[string]interface{}, err error) {
	if err != nil {
		fmt.Printf("   失败: %v\n", err)
		return
	}
	fmt.Printf("   成功: %v\n", resp)
}

func dataField(resp map[string]interface{}, key string) float64 {
	data, ok := resp["data"].(map[string]interface{})
	if !ok {
		return 0
	}
	v, _ := data[key].(float64)
	return v
}

func send(method, url string, body interface{}, token string) (int, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonData)
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return 0, nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	return resp.StatusCode, bodyBytes, err
}

func httpDo(method, url string, body interface{}, token string) (map[string]interface{}, error) {
	status, bodyBytes, err := send(method, url, body, token)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", status, string(bodyBytes))
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return nil, fmt.Errorf("JSON解析失败: %v, 响应: %s", err, string(bodyBytes))
	}
	return result, nil
}
