package javasrc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/topcallers/pkg/kb"
)

const orderService = `package com.acme.orders;

import java.util.List;
import java.util.function.*;
import static com.acme.util.Strings.trim;

/**
 * Order facade, see {@link OrderRepo#save(Order)}.
 */
public class OrderService extends BaseService implements Handler<Order> {
    private final OrderRepo repo;
    private static final Runnable TICK = () -> audit();

    public OrderService(OrderRepo repo) {
        super(repo);
        this.repo = repo;
    }

    @Override
    public void handle(Order order) {
        repo.save(order);
        validate(order);
        OrderRepo.create(trim("x"));
        new Thread(() -> process(order)).start();
        Function<Order, String> f = Order::id;
    }

    static void audit() {
    }

    private <T extends Order> void validate(T order) {
        order.check();
    }

    void process(Order order) {
    }

    class Inner {
        void run() {
            validate(null);
        }
    }
}
`

func parse(t *testing.T, src string) *File {
	t.Helper()
	f, err := ParseSource("src/main/java/Test.java", []byte(src))
	require.NoError(t, err)
	return f
}

func methodIndex(t *testing.T, f *File, owner, name string) int {
	t.Helper()
	for i, m := range f.Methods {
		if m.Owner == owner && m.Name == name {
			return i
		}
	}
	require.Failf(t, "method not found", "%s.%s", owner, name)
	return -1
}

func TestParseSourceDeclarations(t *testing.T) {
	f := parse(t, orderService)

	require.Equal(t, "com.acme.orders", f.Package)
	require.Equal(t, []Import{
		{Name: "java.util.List"},
		{Name: "java.util.function", OnDemand: true},
		{Name: "com.acme.util.Strings.trim", Static: true},
	}, f.Imports)

	require.Len(t, f.Types, 2)
	svc := f.Types[0]
	require.Equal(t, "OrderService", svc.ID)
	require.Equal(t, "class", svc.Kind)
	require.Equal(t, []string{"BaseService", "Handler<Order>"}, svc.Supertypes)
	require.Equal(t, []Var{
		{Name: "repo", Type: "OrderRepo"},
		{Name: "TICK", Type: "Runnable", Static: true},
	}, svc.Fields)
	require.Equal(t, -1, svc.In)

	inner := f.Types[1]
	require.Equal(t, "OrderService.Inner", inner.ID)
	require.Equal(t, "OrderService", inner.Outer)

	var names []string
	for _, m := range f.Methods {
		names = append(names, m.Owner+"."+m.Name)
	}
	require.Equal(t, []string{
		"OrderService.<clinit>",
		"OrderService.OrderService",
		"OrderService.handle",
		"OrderService.audit",
		"OrderService.validate",
		"OrderService.process",
		"OrderService.Inner.run",
	}, names)

	ctor := f.Methods[methodIndex(t, f, "OrderService", "OrderService")]
	require.True(t, ctor.Constructor)
	require.Equal(t, []Var{{Name: "repo", Type: "OrderRepo"}}, ctor.Params)

	handle := f.Methods[methodIndex(t, f, "OrderService", "handle")]
	require.True(t, handle.Override)
	require.Equal(t, []string{"Override"}, handle.Annotations)
	require.Equal(t, "void", handle.Returns)

	audit := f.Methods[methodIndex(t, f, "OrderService", "audit")]
	require.True(t, audit.Static)

	validate := f.Methods[methodIndex(t, f, "OrderService", "validate")]
	require.Equal(t, []kb.TypeParam{{Name: "T", Bounds: []string{"Order"}}}, validate.TypeParams)
	require.Equal(t, []Var{{Name: "order", Type: "T"}}, validate.Params)

	init := f.Methods[0]
	require.True(t, init.Initializer)
	require.Equal(t, svc.Start, init.Start)
	require.Equal(t, svc.End, init.End)
}

func describeCall(f *File, c Call) string {
	in := "-"
	if c.In >= 0 {
		in = f.Methods[c.In].Name
	}
	return fmt.Sprintf("%s %s %s/%d %s:%s doc=%t", in, c.Kind, c.Name, c.Args, c.Receiver.Kind, c.Receiver.Type, c.Doc)
}

func TestParseSourceCalls(t *testing.T) {
	f := parse(t, orderService)

	var got []string
	for _, c := range f.Calls {
		got = append(got, describeCall(f, c))
	}
	require.ElementsMatch(t, []string{
		"- invoke save/1 type:OrderRepo doc=true",
		"<clinit> invoke audit/0 implicit: doc=false",
		"OrderService super /1 : doc=false",
		"handle invoke save/1 var:OrderRepo doc=false",
		"handle invoke validate/1 implicit: doc=false",
		"handle invoke create/1 type:OrderRepo doc=false",
		"handle invoke trim/1 implicit: doc=false",
		"handle invoke start/0 var:Thread doc=false",
		"handle new Thread/1 type:Thread doc=false",
		"handle invoke process/1 implicit: doc=false",
		"handle ref id/-1 type:Order doc=false",
		"validate invoke check/0 var:T doc=false",
		"run invoke validate/1 implicit: doc=false",
	}, got)

	for _, c := range f.Calls {
		switch {
		case c.Doc:
			require.Equal(t, "OrderService", c.Owner)
			require.Equal(t, 8, c.At.Line)
		case c.Name == "validate" && f.Methods[c.In].Name == "run":
			require.Equal(t, "OrderService.Inner", c.Owner)
		}
	}
}

func TestParseSourceFunctionals(t *testing.T) {
	f := parse(t, orderService)
	require.Len(t, f.Functionals, 3)

	tick := f.Functionals[0]
	require.Equal(t, "lambda", tick.Kind)
	require.Equal(t, 0, tick.Params)
	require.Equal(t, HintDeclared, tick.Hint)
	require.Equal(t, "Runnable", tick.Type)
	require.Equal(t, "<clinit>", f.Methods[tick.In].Name)

	thread := f.Functionals[1]
	require.Equal(t, HintArgument, thread.Hint)
	require.Equal(t, 0, thread.Arg)
	require.Equal(t, CallNew, f.Calls[thread.Call].Kind)
	require.Equal(t, "Thread", f.Calls[thread.Call].Name)

	ref := f.Functionals[2]
	require.Equal(t, "methodRef", ref.Kind)
	require.Equal(t, HintDeclared, ref.Hint)
	require.Equal(t, "Function<Order,String>", ref.Type)
}

func TestParseSourceAnonymousAndLocal(t *testing.T) {
	f := parse(t, `package app;

public class Scheduler {
    void start() {
        Runnable r = new Runnable() {
            @Override
            public void run() {
                tick();
            }
        };
        class Retry implements Runnable {
            public void run() {
            }
        }
        r.run();
    }

    void tick() {
    }
}
`)
	require.Len(t, f.Types, 3)
	start := methodIndex(t, f, "Scheduler", "start")

	anon := f.Types[1]
	require.Equal(t, "Scheduler$1", anon.ID)
	require.Equal(t, "anonymous", anon.Kind)
	require.Equal(t, []string{"Runnable"}, anon.Supertypes)
	require.Equal(t, start, anon.In)
	require.Equal(t, 5, anon.Start.Line)

	local := f.Types[2]
	require.Equal(t, "Scheduler$2Retry", local.ID)
	require.Equal(t, "local", local.Kind)
	require.Equal(t, start, local.In)

	run := f.Methods[methodIndex(t, f, "Scheduler$1", "run")]
	require.True(t, run.Override)

	var created Call
	for _, c := range f.Calls {
		if c.Kind == CallNew {
			created = c
		}
	}
	require.Equal(t, "Scheduler$1", created.Anonymous)
	require.Equal(t, start, created.In)
}

func TestParseSourceReceivers(t *testing.T) {
	f := parse(t, `package app;

public class Receivers extends Base {
    private Repo repo;

    void m(Repo param) {
        var local = new Repo();
        for (Repo each : repos()) {
            each.a();
        }
        local.b();
        param.c();
        this.repo.d();
        super.e();
        ((Repo) x).f();
        java.util.Collections.g();
        Repo.Inner.h();
        repos().get(0).i();
        try (Repo r = open()) {
            r.j();
        } catch (IllegalStateException ex) {
            ex.k();
        }
    }
}
`)
	recv := make(map[string]Receiver)
	for _, c := range f.Calls {
		if c.Kind == CallInvoke {
			recv[c.Name] = c.Receiver
		}
	}
	tests := []struct {
		call string
		want Receiver
	}{
		{"a", Receiver{Kind: ReceiverVar, Type: "Repo"}},
		{"b", Receiver{Kind: ReceiverVar, Type: "Repo"}},
		{"c", Receiver{Kind: ReceiverVar, Type: "Repo"}},
		{"d", Receiver{Kind: ReceiverVar, Type: "Repo"}},
		{"e", Receiver{Kind: ReceiverSuper}},
		{"f", Receiver{Kind: ReceiverVar, Type: "Repo"}},
		{"g", Receiver{Kind: ReceiverType, Type: "java.util.Collections"}},
		{"h", Receiver{Kind: ReceiverType, Type: "Repo.Inner"}},
		{"i", Receiver{Kind: ReceiverUnknown}},
		{"j", Receiver{Kind: ReceiverVar, Type: "Repo"}},
		{"k", Receiver{Kind: ReceiverVar, Type: "IllegalStateException"}},
		{"repos", Receiver{Kind: ReceiverImplicit}},
	}
	for _, tt := range tests {
		t.Run(tt.call, func(t *testing.T) {
			require.Equal(t, tt.want, recv[tt.call])
		})
	}
}

func TestParseDocRefs(t *testing.T) {
	tests := []struct {
		comment string
		want    []DocRef
	}{
		{
			comment: "/** Uses {@link Repo#save(Order, boolean)} internally. */",
			want:    []DocRef{{Type: "Repo", Method: "save", Args: 2, Offset: 16}},
		},
		{
			comment: "/**\n * @see #flush()\n * {@linkplain a.b.C#run label}\n */",
			want: []DocRef{
				{Method: "flush", Args: 0, Offset: 12},
				{Type: "a.b.C", Method: "run", Args: -1, Offset: 36},
			},
		},
		{
			comment: "/** {@link Repo} and {@code x#y()} are not method links. */",
		},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, parseDocRefs(tt.comment), tt.comment)
	}
}

func TestOffsetPosition(t *testing.T) {
	text := "/**\n * @see #a()\n */"
	begin := kb.Position{Line: 10, Column: 5}
	require.Equal(t, kb.Position{Line: 10, Column: 7}, offsetPosition(begin, text, 2))
	require.Equal(t, kb.Position{Line: 11, Column: 9}, offsetPosition(begin, text, 12))
}

func TestNormalizeType(t *testing.T) {
	tests := map[string]string{
		"Map< String , List<Integer> >": "Map<String,List<Integer>>",
		"String [ ]":                     "String[]",
		"int":                            "int",
		"java.util.List<? extends T>":    "java.util.List<? extends T>",
		"":                               "",
	}
	for in, want := range tests {
		require.Equal(t, want, normalizeType(in), in)
	}
}

func TestIsTypeName(t *testing.T) {
	require.True(t, isTypeName("Repo"))
	require.True(t, isTypeName("URL"))
	require.False(t, isTypeName("MAX_SIZE"))
	require.False(t, isTypeName("repo"))
	require.False(t, isTypeName(""))
}
