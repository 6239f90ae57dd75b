package topcaller

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/topcallers/pkg/functional"
)

const orderMapperXML = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE mapper PUBLIC "-//mybatis.org//DTD Mapper 3.0//EN" "http://mybatis.org/dtd/mybatis-3-mapper.dtd">
<mapper namespace="app.OrderMapper">
    <select id="findById" resultType="app.Order">
        SELECT * FROM orders WHERE id = #{id}
    </select>
</mapper>
`

var orderTree = map[string]string{
	"src/main/java/app/OrderMapper.java": `package app;

public interface OrderMapper {
    Order findById(long id);
}
`,
	"src/main/java/app/OrderService.java": `package app;

public class OrderService {
    private final OrderMapper mapper;

    public OrderService(OrderMapper mapper) {
        this.mapper = mapper;
    }

    public Order load(long id) {
        return mapper.findById(id);
    }
}
`,
	"src/main/java/app/OrderController.java": `package app;

public class OrderController {
    private final OrderService service;

    public OrderController(OrderService service) {
        this.service = service;
    }

    @GetMapping("/orders/{id}")
    public Order get(long id) {
        return service.load(id);
    }

    public void refresh() {
        Runnable r = () -> service.load(1);
        r.run();
    }
}
`,
	"src/test/java/app/OrderServiceTest.java": `package app;

public class OrderServiceTest {
    @Test
    void loads() {
        new OrderService(null).load(1);
    }
}
`,
	"src/main/resources/mapper/OrderMapper.xml": orderMapperXML,
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestLoadSources(t *testing.T) {
	root := writeFiles(t, orderTree)
	var progress atomic.Int64
	loaded, err := Load(context.Background(), LoaderOptions{
		Root:     root,
		Progress: func(done, total int) { progress.Add(1) },
	})
	require.NoError(t, err)
	require.Equal(t, 4, loaded.Files)
	require.Equal(t, 4, loaded.Parsed)
	require.Equal(t, int64(4), progress.Load())
	require.Equal(t, 1, loaded.Statements.Len())

	starts, err := loaded.Targets("", "findById")
	require.NoError(t, err)
	require.Len(t, starts, 1)
	require.Equal(t, "app.OrderMapper.findById(long)", starts[0].Ref())

	finder := NewFinder(loaded.Snapshot, Options{})
	res, err := finder.Search(context.Background(), starts[0])
	require.NoError(t, err)
	require.False(t, res.Truncated)
	require.Zero(t, res.Failures)

	var refs []string
	for _, mi := range res.TopCallers {
		refs = append(refs, mi.Method.Ref())
	}
	require.Equal(t, []string{
		"app.OrderController.get(long)",
		"app.OrderController.refresh()",
	}, refs)
	require.Equal(t, functional.EntryHTTP, res.TopCallers[0].Kind)
	require.Equal(t, 2, res.TopCallers[0].Depth)
}

func TestLoadFactsFile(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"facts.yaml": `
methods:
  - {owner: app.OrderMapper, name: findById, params: [long], annotations: [Select]}
  - {owner: app.Jobs, name: nightly, annotations: [Scheduled]}
  - {owner: app.JobsTest, name: runs, file: src/test/java/app/JobsTest.java, line: 5, end_line: 9}
calls:
  - {target: app.OrderMapper.findById(long), in: app.Jobs.nightly()}
  - {target: app.OrderMapper.findById(long), in: app.JobsTest.runs()}
`,
		"mapper/OrderMapper.xml": orderMapperXML,
	})

	tests := []struct {
		name      string
		testRoots []string
		want      []string
	}{
		{
			name: "default test roots",
			want: []string{"app.Jobs.nightly()"},
		},
		{
			name:      "custom test roots",
			testRoots: []string{"**/it/**"},
			want:      []string{"app.Jobs.nightly()", "app.JobsTest.runs()"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loaded, err := Load(context.Background(), LoaderOptions{
				Root:      root,
				FactsFile: filepath.Join(root, "facts.yaml"),
				TestRoots: tt.testRoots,
			})
			require.NoError(t, err)
			require.Zero(t, loaded.Files)
			require.Equal(t, 1, loaded.Statements.Len())

			starts, err := loaded.Targets("", "app.OrderMapper.findById")
			require.NoError(t, err)
			require.Len(t, starts, 1)

			finder := NewFinder(loaded.Snapshot, Options{})
			require.Equal(t, tt.want, topCallerRefs(t, finder, loaded.Snapshot, "app.OrderMapper.findById"))
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(context.Background(), LoaderOptions{})
	require.Error(t, err)

	_, err = Load(context.Background(), LoaderOptions{FactsFile: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)

	root := writeFiles(t, map[string]string{
		"facts.yaml": "calls:\n  - {target: app.Nope.x(), in: app.Nope.y()}\n",
	})
	_, err = Load(context.Background(), LoaderOptions{FactsFile: filepath.Join(root, "facts.yaml")})
	require.ErrorContains(t, err, "build knowledge base")
}

func TestLoadedTargets(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"facts.yaml": `
methods:
  - {owner: app.Repo, name: save, params: [String]}
  - {owner: app.Repo, name: save, params: [String, boolean]}
`,
	})
	loaded, err := Load(context.Background(), LoaderOptions{FactsFile: filepath.Join(root, "facts.yaml")})
	require.NoError(t, err)

	tests := []struct {
		name      string
		method    string
		statement string
		want      int
		wantErr   bool
	}{
		{name: "all overloads", method: "app.Repo.save", want: 2},
		{name: "one overload", method: "app.Repo.save(String)", want: 1},
		{name: "simple owner", method: "Repo.save(String,boolean)", want: 1},
		{name: "unknown method", method: "app.Repo.load", wantErr: true},
		{name: "unknown statement", statement: "findAll", wantErr: true},
		{name: "both", method: "app.Repo.save", statement: "save", wantErr: true},
		{name: "neither", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms, err := loaded.Targets(tt.method, tt.statement)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, ms, tt.want)
		})
	}
}
